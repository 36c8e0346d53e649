package version

// Version is set at build time with -ldflags "-X".
var Version string = "0.0.0"
