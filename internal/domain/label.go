package domain

// Label is the routing decision for a free-form user turn.
type Label string

const (
	LabelMentor    Label = "MENTOR"
	LabelPM        Label = "PM"
	LabelCTO       Label = "CTO"
	LabelVC        Label = "VC"
	LabelCommittee Label = "COMMITTEE"
)

// Labels lists every valid routing label.
var Labels = []Label{LabelMentor, LabelPM, LabelCTO, LabelVC, LabelCommittee}

// CommitteeMembers is the fixed fan-out order of the committee.
var CommitteeMembers = []Label{LabelPM, LabelCTO, LabelVC}

// Valid reports whether l is one of the five labels.
func (l Label) Valid() bool {
	for _, v := range Labels {
		if l == v {
			return true
		}
	}
	return false
}

// HasSubHistory reports whether the persona keeps a private sub-history.
func (l Label) HasSubHistory() bool {
	return l == LabelPM || l == LabelCTO || l == LabelVC
}

// DisplayName is the human-facing role name used in reply labels.
func (l Label) DisplayName() string {
	switch l {
	case LabelMentor:
		return "Mentor"
	case LabelCommittee:
		return "Committee"
	}
	return string(l)
}
