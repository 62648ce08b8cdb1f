package version

// Version is overridden at build time with -ldflags "-X covimport/version.Version=...".
var Version = "dev"
