package shared

// Version is the library version reported to the voice backend on connect.
const Version = "0.3.1"
