package version

// Version is the current version of circulate. It's set at build time with
// ldflags.
var Version = "development"
