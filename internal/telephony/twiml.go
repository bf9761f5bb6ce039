package telephony

import (
	"encoding/xml"
	"fmt"

	"github.com/soyeahso/dialdesk/internal/domain"
)

// ContentType is the media type for rendered voice markup responses.
const ContentType = "application/xml"

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type gatherVerb struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Timeout       int      `xml:"timeout,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	Say           sayVerb
}

type redirectVerb struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

type dialVerb struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Render turns engine instructions into the carrier's voice markup. An empty
// instruction list renders an empty response, which tells the carrier to do
// nothing and keep the call where it is.
func Render(instructions []domain.Instruction) ([]byte, error) {
	resp := voiceResponse{}
	for _, in := range instructions {
		switch in.Verb {
		case domain.VerbSay:
			resp.Verbs = append(resp.Verbs, sayVerb{Text: in.Text})
		case domain.VerbGather:
			resp.Verbs = append(resp.Verbs, gatherVerb{
				Input:         "speech",
				Action:        in.Action,
				Method:        "POST",
				Timeout:       5,
				SpeechTimeout: "auto",
				Say:           sayVerb{Text: in.Text},
			})
		case domain.VerbRedirect:
			resp.Verbs = append(resp.Verbs, redirectVerb{URL: in.Action})
		case domain.VerbDial:
			resp.Verbs = append(resp.Verbs, dialVerb{Number: in.Number})
		case domain.VerbHangup:
			resp.Verbs = append(resp.Verbs, hangupVerb{})
		default:
			return nil, fmt.Errorf("unknown instruction verb %q", in.Verb)
		}
	}

	body, err := xml.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("rendering voice response: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
