package protocol

// Namespace separates the three kinds of room membership that can share a
// room id. Joining chat:general says nothing about call:general or
// doc:general.
type Namespace string

const (
	NamespaceChat Namespace = "chat"
	NamespaceCall Namespace = "call"
	NamespaceDoc  Namespace = "doc"
)

// Key returns the membership map key for a room id within this namespace.
func (n Namespace) Key(roomID string) string {
	return string(n) + ":" + roomID
}
