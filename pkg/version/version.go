package version

// Version is the current Cicerone release identifier.
const Version = "0.4.1"
