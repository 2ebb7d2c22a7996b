package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/systembot/internal/action"
	"github.com/m3rciful/systembot/internal/systems"
)

const timeLayout = "2006-01-02 15:04 MST"

// DMUnavailable tells the invoker the bot could not open a private chat.
func DMUnavailable() Message {
	return Text("❌ Could not send you a DM. Please make sure your DMs are open and try again.")
}

// CreateStarted is the invoking-chat reply after the upload prompt went out.
func CreateStarted(name, desc string) Message {
	var w builder
	w.title("📁 Create New System").
		line("I've sent you a DM to upload the file for this system.").
		blank().
		field("System Name", name).
		field("Description", desc)
	return Message{Text: w.String()}
}

// CreatePrompt is the private upload prompt.
func CreatePrompt(name, desc string, timeout time.Duration) Message {
	var w builder
	w.title("📁 Upload File for New System").
		line("Please upload a file for your new system by attaching it to your next message here.").
		blank().
		field("System Name", name).
		field("Description", desc).
		blank().
		italic("You have " + minutes(timeout) + " to upload the file")
	return Message{Text: w.String()}
}

// CreateConfirm asks the user to confirm the captured attachment.
func CreateConfirm(uid int64, name, desc string, f systems.File) Message {
	var w builder
	w.title("✅ File Received").
		line("Please confirm to save this system permanently.").
		blank().
		field("System Name", name).
		field("Description", desc).
		field("File", fileWithSize(f))
	return Message{
		Text:    w.String(),
		Buttons: confirmRow(uid, name, action.CreateConfirm, action.CreateCancel, "✅ Confirm"),
	}
}

// CreateDone summarises the stored record.
func CreateDone(rec systems.Record) Message {
	var w builder
	w.title("✅ System Created Successfully").
		line(fmt.Sprintf(`System "%s" has been saved.`, rec.Name)).
		blank().
		field("Name", rec.Name).
		field("Description", rec.Description).
		field("File", fileLabel(rec.File))
	return Message{Text: w.String()}
}

// NoPendingCreate reports a confirmation without a live create flow.
func NoPendingCreate() Message {
	return Text("❌ No pending system creation found. Please try again.")
}

// CreateCancelled closes a cancelled create flow.
func CreateCancelled() Message { return Text("❌ System creation cancelled.") }

// UpdateSelector offers the editable fields of rec.
func UpdateSelector(uid int64, rec systems.Record) Message {
	var w builder
	w.title("🔄 Update System").
		line(fmt.Sprintf(`What would you like to update for system "%s"?`, rec.Name)).
		blank().
		field("Current Name", rec.Name).
		field("Current Description", rec.Description).
		field("Current File", fileLabel(rec.File))
	rows := make([][]Button, 0, len(systems.Fields))
	for _, f := range systems.Fields {
		rows = append(rows, []Button{{
			Text:   fieldButton(f),
			Action: action.Action{Kind: action.UpdateSelect, UserID: uid, System: rec.Name, Field: f},
		}})
	}
	return Message{Text: w.String(), Buttons: rows}
}

func fieldButton(f systems.Field) string {
	switch f {
	case systems.FieldName:
		return "📝 Update Name"
	case systems.FieldDescription:
		return "📄 Update Description"
	default:
		return "📁 Update File"
	}
}

func fieldTitle(f systems.Field) string {
	s := string(f)
	return strings.ToUpper(s[:1]) + s[1:]
}

// UpdatePrompt asks for the replacement value of one field.
func UpdatePrompt(f systems.Field, name string, timeout time.Duration) Message {
	var title, prompt string
	switch f {
	case systems.FieldName:
		title = "📝 Update System Name"
		prompt = fmt.Sprintf(`Please enter the new name for system "%s":`, name)
	case systems.FieldDescription:
		title = "📄 Update System Description"
		prompt = fmt.Sprintf(`Please enter the new description for system "%s":`, name)
	default:
		title = "📁 Update System File"
		prompt = fmt.Sprintf(`Please upload the new file for system "%s" in your next message:`, name)
	}
	var w builder
	w.title(title).
		line(prompt).
		blank().
		field("System Name", name).
		field("Updating", fieldTitle(f)).
		blank().
		italic("You have " + minutes(timeout) + " to respond")
	return Message{Text: w.String()}
}

// UpdateConfirm asks the user to confirm a captured text value.
func UpdateConfirm(uid int64, name string, f systems.Field, value string) Message {
	var w builder
	w.title("✅ Update Received").
		line("Please confirm to update this system.").
		blank().
		field("System Name", name).
		field("Updating", fieldTitle(f)).
		field("New Value", value)
	return Message{
		Text:    w.String(),
		Buttons: confirmRow(uid, name, action.UpdateConfirm, action.UpdateCancel, "✅ Confirm"),
	}
}

// UpdateFileConfirm asks the user to confirm a captured replacement file.
func UpdateFileConfirm(uid int64, name string, file systems.File) Message {
	var w builder
	w.title("✅ File Received").
		line("Please confirm to update this system.").
		blank().
		field("System Name", name).
		field("Updating", "File").
		field("New File", fileWithSize(file))
	return Message{
		Text:    w.String(),
		Buttons: confirmRow(uid, name, action.UpdateConfirm, action.UpdateCancel, "✅ Confirm"),
	}
}

// UpdateDone summarises the stored record after an update of field f.
func UpdateDone(rec systems.Record, f systems.Field) Message {
	var change string
	switch f {
	case systems.FieldName:
		change = fmt.Sprintf(`Name updated to "%s"`, rec.Name)
	case systems.FieldDescription:
		change = "Description updated"
	default:
		change = fmt.Sprintf(`File updated to "%s"`, fileLabel(rec.File))
	}
	var w builder
	w.title("✅ System Updated Successfully").
		line(change).
		blank().
		field("System Name", rec.Name).
		field("Description", rec.Description).
		field("File", fileLabel(rec.File))
	return Message{Text: w.String()}
}

// NoPendingUpdate reports a confirmation without a live update flow.
func NoPendingUpdate() Message { return Text("❌ No pending update found. Please try again.") }

// UpdateCancelled closes a cancelled update flow.
func UpdateCancelled() Message { return Text("❌ System update cancelled.") }

// RemoveConfirm asks the user to confirm deletion of rec.
func RemoveConfirm(uid int64, rec systems.Record) Message {
	var w builder
	w.title("⚠️ Confirm System Removal").
		line(fmt.Sprintf(`Are you sure you want to remove the system "%s"?`, rec.Name)).
		blank().
		field("System Name", rec.Name).
		field("Description", rec.Description).
		field("File", fileLabel(rec.File)).
		blank().
		italic("This action cannot be undone!")
	return Message{
		Text:    w.String(),
		Buttons: confirmRow(uid, rec.Name, action.RemoveConfirm, action.RemoveCancel, "✅ Yes, Remove"),
	}
}

// RemoveDone confirms the deletion.
func RemoveDone(name string) Message {
	var w builder
	w.title("✅ System Removed").
		line(fmt.Sprintf(`System "%s" has been successfully removed.`, name))
	return Message{Text: w.String()}
}

// AlreadyRemoved reports a confirm for a record that is gone.
func AlreadyRemoved(name string) Message {
	return Text(fmt.Sprintf(`❌ System "%s" not found. It may have already been removed.`, name))
}

// RemoveCancelled closes a cancelled removal.
func RemoveCancelled() Message { return Text("❌ System removal cancelled.") }

// Person is a display handle for a user.
type Person struct {
	ID   int64
	Name string
}

func (p Person) label() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return fmt.Sprintf("user %d", p.ID)
}

// SentSystem is the private message delivered to the recipient of /send.
// The stored document, when present, is attached after the text.
func SentSystem(rec systems.Record, from Person) Message {
	var w builder
	w.line(fmt.Sprintf("You have received a system from %s:", from.label())).
		blank().
		title("📁 System: "+rec.Name).
		line(rec.Description).
		blank().
		field("Sent by", from.label()).
		field("Created by", fmt.Sprintf("user %d", rec.CreatedBy)).
		field("Created at", rec.CreatedAt.UTC().Format(timeLayout))
	msg := Message{}
	if rec.HasFile() {
		w.field("File", rec.File.Name).field("File Size", KB(rec.File.SizeBytes))
		f := *rec.File
		msg.Document = &f
	}
	msg.Text = w.String()
	return msg
}

// SendDone confirms delivery to the sender.
func SendDone(rec systems.Record, to Person) Message {
	var w builder
	w.title("✅ System Sent Successfully").
		line(fmt.Sprintf(`System "%s" has been sent to %s.`, rec.Name, to.label())).
		blank().
		field("Recipient", to.label()).
		field("System", rec.Name)
	return Message{Text: w.String()}
}

// Delivery failure reasons understood by SendFailed.
const (
	SendUnreachable = "unreachable"
	SendForbidden   = "forbidden"
)

// SendFailed reports a failed delivery with its classification.
func SendFailed(rec systems.Record, to Person, reason string) Message {
	msg := "❌ Failed to send the system via DM."
	switch reason {
	case SendUnreachable:
		msg = fmt.Sprintf("❌ Could not send DM to %s. They may have disabled DMs or never started the bot.", to.label())
	case SendForbidden:
		msg = fmt.Sprintf("❌ Missing permissions to send DM to %s.", to.label())
	}
	var w builder
	w.title("❌ Send Failed").
		line(msg).
		blank().
		field("Intended Recipient", to.label()).
		field("System", rec.Name)
	return Message{Text: w.String()}
}

// NoRecipient reports a /send without a resolvable recipient.
func NoRecipient() Message {
	return Text("❌ Please reply to the recipient's message, mention them, or pass their user id.")
}

// Listing renders up to ListLimit records.
func Listing(recs []systems.Record) Message {
	if len(recs) == 0 {
		return Text("📭 No systems saved yet.")
	}
	var w builder
	w.title("📁 Saved Systems").
		line(fmt.Sprintf("Found %d system(s):", len(recs)))
	for i, rec := range recs {
		if i == ListLimit {
			break
		}
		file := "📄 No file"
		if rec.HasFile() {
			file = "📎 " + rec.File.Name
		}
		w.blank().
			title(fmt.Sprintf("%d. %s", i+1, rec.Name)).
			field("Description", rec.Description).
			field("File", file).
			field("Created", rec.CreatedAt.UTC().Format("2006-01-02"))
	}
	w.blank()
	if len(recs) > ListLimit {
		w.italic(fmt.Sprintf("Showing first %d of %d systems", ListLimit, len(recs)))
	} else {
		w.italic(fmt.Sprintf("Total: %d system(s)", len(recs)))
	}
	return Message{Text: w.String()}
}
