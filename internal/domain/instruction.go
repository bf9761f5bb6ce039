package domain

// Verb is a telephony-control instruction kind understood by the gateway.
type Verb string

const (
	VerbSay      Verb = "say"
	VerbGather   Verb = "gather"
	VerbRedirect Verb = "redirect"
	VerbDial     Verb = "dial"
	VerbHangup   Verb = "hangup"
)

// Instruction is a single engine-issued action. A list of instructions is
// rendered by the telephony adapter into the gateway's markup.
type Instruction struct {
	Verb   Verb   `json:"verb"`
	Text   string `json:"text,omitempty"`   // spoken prompt (say, gather)
	Action string `json:"action,omitempty"` // callback path (gather, redirect)
	Number string `json:"number,omitempty"` // destination (dial)
}

// Say speaks text to the caller.
func Say(text string) Instruction {
	return Instruction{Verb: VerbSay, Text: text}
}

// Gather speaks a prompt and collects speech, posting the transcription to
// the given callback action.
func Gather(action, prompt string) Instruction {
	return Instruction{Verb: VerbGather, Action: action, Text: prompt}
}

// Redirect tells the gateway to re-enter the flow at the given action.
func Redirect(action string) Instruction {
	return Instruction{Verb: VerbRedirect, Action: action}
}

// Dial bridges the caller to the given number.
func Dial(number string) Instruction {
	return Instruction{Verb: VerbDial, Number: number}
}

// Hangup ends the call.
func Hangup() Instruction {
	return Instruction{Verb: VerbHangup}
}
