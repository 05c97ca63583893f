package protocol

// Event names accepted from clients.
const (
	EventAnnouncePresence = "announce-presence"

	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"

	EventRoomMessage = "room-message"
	EventTyping      = "typing"

	EventJoinCall     = "join-call"
	EventLeaveCall    = "leave-call"
	EventCallOffer    = "call-offer"
	EventCallAnswer   = "call-answer"
	EventICECandidate = "ice-candidate"

	EventJoinDocRoom    = "join-doc-room"
	EventGetDocuments   = "get-documents"
	EventCreateDocument = "create-document"
	EventSaveDocument   = "save-document"
	EventDeleteDocument = "delete-document"
	EventDocumentChange = "document-change"
	EventCursorUpdate   = "cursor-update"
)

// Event names pushed to clients. Relayed events (room-message, call-offer,
// call-answer, ice-candidate, document-change) reuse the inbound name.
const (
	EventUsersOnline = "users-online"

	EventUserJoinedRoom = "user-joined-room"
	EventUserLeftRoom   = "user-left-room"
	EventUserTyping     = "user-typing"

	EventUserJoinedCall = "user-joined-call"
	EventUserLeftCall   = "user-left-call"

	EventCollaboratorJoined = "collaborator-joined"
	EventCollaboratorLeft   = "collaborator-left"
	EventDocumentsList      = "documents-list"
	EventDocumentUpdated    = "document-updated"

	EventError = "error"
)
