package app

// Name is the program name used in version output and CLI help.
const Name = "sshcore"
