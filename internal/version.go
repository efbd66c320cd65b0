package internal

// Version is the semantic version of doge, reported by --version and the
// startup banner.
const Version = "4.0.0"
