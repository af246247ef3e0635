package whatsapp

import (
	"encoding/xml"
	"fmt"
)

// twimlResponse is the TwiML document returned to Twilio. An empty Messages
// slice renders as an empty <Response/>, which tells Twilio to send nothing.
type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message,omitempty"`
}

func renderTwiML(messages ...string) ([]byte, error) {
	body, err := xml.Marshal(twimlResponse{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TwiML: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
