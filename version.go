package bowerbird

// Version is the bowerbird CLI version.
const Version = "0.3.0"
