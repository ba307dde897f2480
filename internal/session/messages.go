package session

// hello is the first frame a client sends after connecting: credentials plus
// the program to run.
type hello struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
	Program  string `json:"program"`
}

// inbound frames after the hello. Only type "input" is meaningful.
type inbound struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type outputMsg struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type endMsg struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}
