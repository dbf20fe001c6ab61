package usecase

// ArtifactValidator checks a serialized manifest before it is committed.
type ArtifactValidator interface {
	Validate(doc []byte) error
}
