package tip

import (
	"testing"

	"github.com/rcornwell/cyber370/emu/npu/buffer"
)

// TestRequestInitSendsThreeCannedBlocks pins the BtHTRINIT handshake
// against npu_tip.cpp's real sequence: ack, then init-response, then the
// terminal's own request-init, as three separate upline sends rather
// than one.
func TestRequestInitSendsThreeCannedBlocks(t *testing.T) {
	pool := buffer.NewPool(4)
	tc := NewTCB(1, Class3, pool)

	var sent [][]byte
	tc.FlushUpline = func(seq uint8, data []byte) {
		sent = append(sent, data)
	}

	if err := tc.HandleDownlineBlock(BtHTRINIT, 0, 0, nil, nil); err != nil {
		t.Fatalf("HandleDownlineBlock: %v", err)
	}

	want := []byte{BtHTBACK, BtHTNINIT, BtHTRINIT}
	if len(sent) != len(want) {
		t.Fatalf("got %d upline sends, want %d: %v", len(sent), len(want), sent)
	}
	for i, w := range want {
		if len(sent[i]) != 1 || sent[i][0] != w {
			t.Errorf("send %d = %v, want [%d]", i, sent[i], w)
		}
	}
}
