package ir

// Kind names an intent. Kinds are wire names shared by every replica.
type Kind string

// Intent is one command in a session's totally ordered stream.
//
// Seq is assigned by the sequencer and is the only ordering that matters:
// replicas apply intents in ascending Seq and never consult wall clocks.
type Intent struct {
	ID      string `json:"id"`
	Session string `json:"session"`
	Seq     int64  `json:"seq"`
	Kind    Kind   `json:"kind"`
	Args    Object `json:"args"`
}

// Stamp fills in Seq and the content-addressed ID.
func (in *Intent) Stamp(seq int64) error {
	in.Seq = seq
	if in.Args == nil {
		in.Args = Object{}
	}
	id, err := IntentID(in.Session, in.Kind, in.Args, seq)
	if err != nil {
		return err
	}
	in.ID = id
	return nil
}

// ViewID returns the participant that issued the intent, if any.
func (in Intent) ViewID() string {
	s, _ := in.Args.Str("viewId")
	return s
}
