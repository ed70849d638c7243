package memory

// Entry is a key-value pair in the store. Values are raw bytes.
type Entry struct {
	Key   string
	Value []byte
}
