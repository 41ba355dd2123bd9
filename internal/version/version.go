package version

// Version is the semantic version of this build. Release tooling overrides
// it at link time with -ldflags "-X .../internal/version.Version=...".
var Version = "0.4.0-dev"
