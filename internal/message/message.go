package message

import "encoding/json"

// Inbound message types
const (
	TypeDraw           = "draw"
	TypeClear          = "clear"
	TypeRecognizeImage = "recognize_image"
	TypeGetUserID      = "getUserId"
)

// Outbound message types
const (
	TypeWelcome           = "welcome"
	TypeUserID            = "userId"
	TypeRecognitionResult = "recognition_result"
	TypeError             = "error"
)

// ServerErrorText is sent to a client whose message could not be processed
const ServerErrorText = "server error processing request"

// Envelope is the part of every inbound message the server inspects.
// Type must be present and a string; any string value, empty included, is routable.
type Envelope struct {
	Type *string `json:"type" validate:"required"`
}

// RecognizeRequest asks for the canvas image to be transcribed
type RecognizeRequest struct {
	Type  string  `json:"type"`
	Image *string `json:"image" validate:"required"`
}

// RecognitionResult carries recognized text or a failure description
type RecognitionResult struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Identity tells a client who it is
type Identity struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Color  string `json:"color"`
}

// Error is a reply to the sender of a message that failed processing
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRecognitionResult(text string) ([]byte, error) {
	return json.Marshal(RecognitionResult{Type: TypeRecognitionResult, Text: text})
}

func NewIdentity(msgType, userID, color string) ([]byte, error) {
	return json.Marshal(Identity{Type: msgType, UserID: userID, Color: color})
}

func NewServerError() ([]byte, error) {
	return json.Marshal(Error{Type: TypeError, Message: ServerErrorText})
}
