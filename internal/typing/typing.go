package typing

// Unit is the empty value carried by side-effecting fp-go pipelines.
type Unit = struct{}
