package telephony

import (
	"encoding/xml"
	"fmt"
)

// TwiML verbs answered back to the provider on each webhook. The builder
// keeps verbs in append order; order is significant on the wire.

// Say speaks text to the callee.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Pause holds the line silent for Length seconds.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

// Gather collects speech and DTMF and posts the result to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Timeout       int      `xml:"timeout,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	MaxSpeechTime int      `xml:"maxSpeechTime,attr,omitempty"`
	Hints         string   `xml:"hints,attr,omitempty"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Say           *Say     `xml:"Say,omitempty"`
}

// Record records the call audio server-side.
type Record struct {
	XMLName   xml.Name `xml:"Record"`
	MaxLength int      `xml:"maxLength,attr"`
	PlayBeep  bool     `xml:"playBeep,attr"`
}

// Redirect hands control of the call to another webhook.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Hangup ends the call leg.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Response builds a TwiML document verb by verb.
type Response struct {
	verbs []any
}

// NewResponse returns an empty TwiML response.
func NewResponse() *Response {
	return &Response{}
}

// Say appends a spoken line using the default voice.
func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, Say{Text: text})
	return r
}

// SayVoice appends a spoken line with an explicit voice.
func (r *Response) SayVoice(voice, text string) *Response {
	r.verbs = append(r.verbs, Say{Voice: voice, Text: text})
	return r
}

// Pause appends a silent hold of the given length in seconds.
func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, Pause{Length: seconds})
	return r
}

// Gather appends a speech and DTMF collection verb.
func (r *Response) Gather(g Gather) *Response {
	r.verbs = append(r.verbs, g)
	return r
}

// Record appends a server-side recording verb.
func (r *Response) Record(maxLength int) *Response {
	r.verbs = append(r.verbs, Record{MaxLength: maxLength})
	return r
}

// Redirect appends a webhook handoff.
func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, Redirect{Method: "POST", URL: url})
	return r
}

// Hangup appends a hangup verb.
func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, Hangup{})
	return r
}

// Render serializes the response to a TwiML document.
func (r *Response) Render() ([]byte, error) {
	inner, err := xml.Marshal(struct {
		XMLName xml.Name `xml:"Response"`
		Verbs   []any
	}{Verbs: r.verbs})
	if err != nil {
		return nil, fmt.Errorf("marshaling twiml: %w", err)
	}
	return append([]byte(xml.Header), inner...), nil
}
