package keyboard

import "testing"

func TestInlineButtonsRows(t *testing.T) {
	if InlineButtonsRows() != nil {
		t.Fatal("expected nil markup without rows")
	}
	if InlineButtonsRows([]InlineBtn{}) != nil {
		t.Fatal("expected nil markup for empty rows")
	}
	m := InlineButtonsRows(
		[]InlineBtn{{Text: "Yes", Unique: "rm_ok", Data: "1a||A"}, {Text: "No", Unique: "rm_no", Data: "1a||A"}},
	)
	if len(m.InlineKeyboard) != 1 || len(m.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected layout %+v", m.InlineKeyboard)
	}
	btn := m.InlineKeyboard[0][0]
	if btn.Text != "Yes" || btn.Unique != "rm_ok" || btn.Data != "1a||A" {
		t.Fatalf("unexpected button %+v", btn)
	}
}
