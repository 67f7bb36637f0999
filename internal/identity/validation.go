package identity

// placeholderIDs are normalized values that mark missing or test data.
// Every file carrying one of them hashes to the same pseudonym.
var placeholderIDs = map[string]bool{
	"":          true,
	"unknown":   true,
	"no name":   true,
	"noname":    true,
	"anonymous": true,
	"anon":      true,
	"test":      true,
	"patient":   true,
	"none":      true,
}

// IsPlaceholder reports whether a raw identifier is a known placeholder value.
func IsPlaceholder(value string) bool {
	return placeholderIDs[Normalize(value)]
}
