package apicore

// Version is the library version reported in the User-Agent and platform
// fingerprint headers.
const Version = "1.2.0"
