package settlement

// Member is a trip participant as seen by the settlement engine.
type Member struct {
	ID       string
	Name     string
	LinkedTo string // empty when the member is its own settlement unit
}

// Roster indexes the members of one trip and resolves every member to its
// settlement unit. Links are validated once, on construction.
type Roster struct {
	members map[string]Member
	units   []string
}

// NewRoster validates household links and builds the member index.
func NewRoster(members []Member) (*Roster, error) {
	index := make(map[string]Member, len(members))
	for _, m := range members {
		if _, ok := index[m.ID]; ok {
			return nil, &DuplicateMemberError{MemberID: m.ID}
		}
		index[m.ID] = m
	}

	unitSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		unit, err := resolve(m.ID, index)
		if err != nil {
			return nil, err
		}
		unitSet[unit] = struct{}{}
	}

	return &Roster{members: index, units: sortedIDs(unitSet)}, nil
}

// ResolveSettlementUnit returns the master id for memberID: the member itself
// when it has no link, otherwise the member it links to. Links are one hop.
func ResolveSettlementUnit(memberID string, members []Member) (string, error) {
	index := make(map[string]Member, len(members))
	for _, m := range members {
		index[m.ID] = m
	}
	return resolve(memberID, index)
}

func resolve(memberID string, index map[string]Member) (string, error) {
	m, ok := index[memberID]
	if !ok {
		return "", &UnknownMemberError{MemberID: memberID}
	}
	if m.LinkedTo == "" {
		return m.ID, nil
	}
	if m.LinkedTo == m.ID {
		return "", &InvalidLinkError{MemberID: m.ID, LinkedTo: m.LinkedTo, Reason: "member links to itself"}
	}
	master, ok := index[m.LinkedTo]
	if !ok {
		return "", &InvalidLinkError{MemberID: m.ID, LinkedTo: m.LinkedTo, Reason: "target is not a member of the trip"}
	}
	if master.LinkedTo != "" {
		return "", &InvalidLinkError{MemberID: m.ID, LinkedTo: m.LinkedTo, Reason: "target is linked to another member"}
	}
	return master.ID, nil
}

// Resolve returns the settlement unit of memberID.
func (r *Roster) Resolve(memberID string) (string, error) {
	return resolve(memberID, r.members)
}

// Units returns the settlement unit ids in lexical order.
func (r *Roster) Units() []string {
	out := make([]string, len(r.units))
	copy(out, r.units)
	return out
}

// Member returns the member with the given id.
func (r *Roster) Member(id string) (Member, bool) {
	m, ok := r.members[id]
	return m, ok
}

// Households groups member ids by settlement unit. The master is always the
// first entry of its group; linked members follow in lexical order.
func (r *Roster) Households() map[string][]string {
	groups := make(map[string][]string, len(r.units))
	for _, unit := range r.units {
		groups[unit] = []string{unit}
	}
	for _, id := range sortedIDs(r.members) {
		m := r.members[id]
		if m.LinkedTo == "" {
			continue
		}
		groups[m.LinkedTo] = append(groups[m.LinkedTo], id)
	}
	return groups
}
