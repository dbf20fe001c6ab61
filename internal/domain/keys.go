package domain

// Signature algorithms a manifest signature may declare.
const (
	AlgES256   = "es256"
	AlgEd25519 = "ed25519"
	AlgRS256   = "rs256"
)

const DefaultSigningAlgorithm = AlgES256
