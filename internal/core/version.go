package core

// Version is the floworc backend version, stamped into /health and the
// server-info metric.
const Version = "0.3.0"
