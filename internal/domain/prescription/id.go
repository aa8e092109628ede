// Package prescription defines the prescription identifier: a workflow-typed
// sequence number with an embedded mod-97 checksum, rendered as
// "aaa.bbb.bbb.bbb.bbb.cc".
package prescription

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FlowType is the workflow-type code embedded in a prescription id.
type FlowType uint8

const (
	FlowTypeStatutory               FlowType = 160
	FlowTypeDirectAssignment        FlowType = 169
	FlowTypePrivate                 FlowType = 200
	FlowTypeDirectAssignmentPrivate FlowType = 209
)

// Valid reports whether t is a known workflow type.
func (t FlowType) Valid() bool {
	switch t {
	case FlowTypeStatutory, FlowTypeDirectAssignment, FlowTypePrivate, FlowTypeDirectAssignmentPrivate:
		return true
	}
	return false
}

// Private reports whether t belongs to the private-insurance workflows, the
// only ones for which charge items may exist.
func (t FlowType) Private() bool {
	return t == FlowTypePrivate || t == FlowTypeDirectAssignmentPrivate
}

// ID is a validated prescription identifier.
type ID struct {
	flowType FlowType
	num      int64
	checksum uint8
}

var idPattern = regexp.MustCompile(`^[0-9]{3}\.[0-9]{3}\.[0-9]{3}\.[0-9]{3}\.[0-9]{3}\.[0-9]{2}$`)

// NewID builds an ID for the given workflow type and database sequence number,
// computing the checksum.
func NewID(flowType FlowType, num int64) ID {
	return ID{flowType: flowType, num: num, checksum: checksum(flowType, num)}
}

// Parse parses and checksum-validates the string form.
func Parse(s string) (ID, error) {
	id, err := ParseNoValidation(s)
	if err != nil {
		return ID{}, err
	}
	if ((int64(id.flowType)+id.num)*100+int64(id.checksum))%97 != 1 {
		return ID{}, fmt.Errorf("prescription id %s: checksum mismatch", s)
	}
	return id, nil
}

// ParseNoValidation parses the string form without verifying the checksum.
func ParseNoValidation(s string) (ID, error) {
	if !idPattern.MatchString(s) {
		return ID{}, fmt.Errorf("prescription id %q: wrong format", s)
	}
	parts := strings.Split(s, ".")

	ft, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || !FlowType(ft).Valid() {
		return ID{}, fmt.Errorf("prescription id %q: unsupported workflow type %s", s, parts[0])
	}

	var num int64
	for _, p := range parts[1:5] {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return ID{}, fmt.Errorf("prescription id %q: %w", s, err)
		}
		num = num*1000 + v
	}

	cs, err := strconv.ParseUint(parts[5], 10, 8)
	if err != nil {
		return ID{}, fmt.Errorf("prescription id %q: %w", s, err)
	}

	return ID{flowType: FlowType(ft), num: num, checksum: uint8(cs)}, nil
}

// String renders the canonical dotted form.
func (id ID) String() string {
	digits := fmt.Sprintf("%012d", id.num)
	return fmt.Sprintf("%03d.%s.%s.%s.%s.%02d",
		uint8(id.flowType), digits[0:3], digits[3:6], digits[6:9], digits[9:12], id.checksum)
}

// DatabaseID returns the raw sequence number used as the relational key.
func (id ID) DatabaseID() int64 { return id.num }

// FlowType returns the embedded workflow type.
func (id ID) FlowType() FlowType { return id.flowType }

func checksum(flowType FlowType, num int64) uint8 {
	return uint8(98 - ((int64(flowType)+num)*100)%97)
}
