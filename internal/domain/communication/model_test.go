package communication

import "testing"

func TestChargeItemRelated(t *testing.T) {
	related := map[MessageType]bool{
		MessageInfoReq:          false,
		MessageChargChangeReq:   true,
		MessageChargChangeReply: true,
		MessageReply:            false,
		MessageDispReq:          false,
		MessageRepresentative:   false,
	}
	for mt, want := range related {
		if got := mt.ChargeItemRelated(); got != want {
			t.Errorf("MessageType(%d).ChargeItemRelated() = %v, want %v", mt, got, want)
		}
	}
}
