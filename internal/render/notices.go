package render

import (
	"fmt"

	"github.com/m3rciful/systembot/core/telegram/format"
)

// Cooldown tells the user how long to wait before retrying.
func Cooldown(secs int) Message {
	return Text(fmt.Sprintf("⏰ Please wait %d seconds before using this command again.", secs))
}

// Plain notices shared by several flows. Callback answers are not parsed as
// markdown, so these stay unescaped.
const (
	NoPermission = "❌ You do not have permission to use this bot."
	NotOwner     = "❌ You can only confirm your own actions."
)

// NotFound reports an unknown system name on a command.
func NotFound(name string) Message {
	return Text(fmt.Sprintf(`❌ System "%s" not found. Use /checksystems to see available systems.`, name))
}

// Vanished reports a system that disappeared while a flow was pending.
func Vanished(name string) Message {
	return Text(fmt.Sprintf(`❌ System "%s" not found.`, name))
}

// Duplicate reports a name collision.
func Duplicate(name string) Message {
	return Text(fmt.Sprintf(`❌ A system with the name "%s" already exists. Please choose a different name.`, name))
}

// Invalid reports rejected command input.
func Invalid(err error) Message {
	return Text("❌ " + err.Error())
}

// Usage shows the argument syntax of a command.
func Usage(usage string) Message {
	return Message{Text: format.V2("❌ Usage: ") + "`" + format.V2Code(usage) + "`"}
}

// InvalidValue asks for a non-empty reply.
func InvalidValue() Message { return Text("❌ Please provide a valid value.") }

// NoFileAttached asks for an attachment while a file is expected.
func NoFileAttached() Message {
	return Text("❌ No file attachment found. Please attach a file to your message.")
}

// Failed reports an internal error to the user.
func Failed(what string) Message {
	return Text(fmt.Sprintf("❌ An error occurred while %s the system. Please try again.", what))
}

// CreateTimedOut ends a create flow that never received its file.
func CreateTimedOut() Message {
	return Text("⏰ File upload timed out. Please use the /create command again.")
}

// CreateConfirmTimedOut ends a create flow left unconfirmed.
func CreateConfirmTimedOut() Message {
	return Text("⏰ Confirmation timed out. Please use the /create command again.")
}

// UpdateTimedOut ends an expired update flow.
func UpdateTimedOut() Message {
	return Text("⏰ Update timed out. Please try the command again.")
}
