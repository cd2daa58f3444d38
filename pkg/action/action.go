// Package action defines the OVS-style action list and the executor
// that applies it to a packet buffer, per spec.md §4.4.
package action

import "github.com/ovsdp/ovsdp/pkg/flowkey"

// MaxActions is the compile-time maximum action-list length spec.md
// §3 calls for ("up to N actions, e.g. 48").
const MaxActions = 48

// Kind distinguishes the action variants in an action list.
type Kind uint8

// Action kinds, matching the table in spec.md §4.4. Drop and the
// list-terminating NULL action share Kind Drop: a list with no actions
// at all and a list that ends with an explicit Drop have the same
// runtime effect.
const (
	Drop Kind = iota
	Output
	PopVlan
	PushVlan
	SetEthernet
	SetIPv4
	SetTCP
	SetUDP
	Vswitchd
)

// VportID is re-exported from flowkey so callers don't need to import
// both packages just to build an action list.
type VportID = flowkey.VportID

// Action is one entry of an action list. Only the fields relevant to
// its Kind are meaningful; the zero value of the others is ignored.
// Using one struct rather than an interface keeps an action list a
// flat, fixed-size array with no per-packet allocation, matching the
// "no per-packet dynamic allocation on the forwarding path" Non-goal.
type Action struct {
	Kind Kind

	// Output / Vswitchd
	Port VportID
	// Vswitchd
	PID uint32

	// PushVlan
	TCI uint16

	// SetEthernet
	EthSrc, EthDst [6]byte

	// SetIPv4
	IPSrc, IPDst uint32
	IPTos, IPTTL uint8

	// SetTCP / SetUDP
	TPSrc, TPDst uint16
}

// NewOutput builds an OUTPUT(vport) action.
func NewOutput(port VportID) Action { return Action{Kind: Output, Port: port} }

// NewDrop builds a DROP action.
func NewDrop() Action { return Action{Kind: Drop} }

// NewPopVlan builds a POP_VLAN action.
func NewPopVlan() Action { return Action{Kind: PopVlan} }

// NewPushVlan builds a PUSH_VLAN(tci) action.
func NewPushVlan(tci uint16) Action { return Action{Kind: PushVlan, TCI: tci} }

// NewSetEthernet builds a SET_ETHERNET(dst, src) action.
func NewSetEthernet(dst, src [6]byte) Action {
	return Action{Kind: SetEthernet, EthDst: dst, EthSrc: src}
}

// NewSetIPv4 builds a SET_IPV4(src, dst, tos, ttl) action.
func NewSetIPv4(src, dst uint32, tos, ttl uint8) Action {
	return Action{Kind: SetIPv4, IPSrc: src, IPDst: dst, IPTos: tos, IPTTL: ttl}
}

// NewSetTCP builds a SET_TCP(src, dst) action.
func NewSetTCP(src, dst uint16) Action { return Action{Kind: SetTCP, TPSrc: src, TPDst: dst} }

// NewSetUDP builds a SET_UDP(src, dst) action.
func NewSetUDP(src, dst uint16) Action { return Action{Kind: SetUDP, TPSrc: src, TPDst: dst} }

// NewVswitchd builds a VSWITCHD(pid) upcall action.
func NewVswitchd(pid uint32) Action { return Action{Kind: Vswitchd, PID: pid} }

// NumOutputs counts the OUTPUT actions in a list, used once per packet
// by the executor to decide the cloning policy of spec.md §4.1.
func NumOutputs(actions []Action) int {
	n := 0
	for _, a := range actions {
		if a.Kind == Output {
			n++
		}
	}
	return n
}
