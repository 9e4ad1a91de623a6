package assistant

import "strings"

const Greeting = `Hi, I'm Argos, the assistant built into IOTRAC to help keep your IoT devices safe.

Try asking:
  "Tell me about Argos and what it can do."
  "How does IOTRAC's protection system work?"`

type rule struct {
	// all must every appear; any needs at least one. Empty lists match.
	all   []string
	any   []string
	reply string
}

// rules are checked in order; the first match answers. Keywords cover the
// English and Portuguese phrasing the app has always accepted.
var rules = []rule{
	{
		all: []string{"argos"},
		any: []string{"history", "história", "functions", "funções", "what it can do", "about"},
		reply: `Argos is IOTRAC's security assistant. It can:
- watch every registered device and flag unusual activity
- explain what the protection layer blocked and why
- walk you through enabling protection or two-factor authentication
- summarise recent logs

Argos never runs a command on your devices without your explicit approval.`,
	},
	{
		all: []string{"iotrac"},
		any: []string{"protection", "proteção", "system", "sistema"},
		reply: `IOTRAC sits between you and your devices as a third line of defence:
- every command is authenticated and checked against the device's protection setting
- protected devices only accept signed, authorised commands
- blocked or suspicious commands are written to the activity log
- access is role based (admin, device operator, user)`,
	},
	{
		any:   []string{"status", "devices", "dispositivos"},
		reply: "All connected devices are being monitored. There are no critical alerts right now.",
	},
	{
		any: []string{"security", "segurança", "protection", "proteção"},
		reply: `Recommendations:
- keep device firmware up to date
- use unique, strong passwords
- turn on two-factor authentication
- review the activity log regularly`,
	},
	{
		any:   []string{"logs", "activity", "atividade"},
		reply: "Open the log view (iotrac logs) to see recent commands. Filter by status to find blocked attempts.",
	},
	{
		any: []string{"anomal", "suspicious", "suspeito"},
		reply: `Anomaly detection watches for:
- unusual traffic patterns
- unauthorised access attempts
- commands outside a device's normal pattern
- activity at unusual hours`,
	},
	{
		any: []string{"command", "comandos", "control", "controle"},
		reply: `I can help you:
- toggle protection on a device
- find devices that sent blocked commands
- send a command (iotrac command <device-id> <command>)`,
	},
	{
		any: []string{"help", "ajuda"},
		reply: `I can help with device monitoring, security analysis, anomaly detection, protection settings and activity logs.
What would you like to know?`,
	},
}

// LocalReply answers text from the built-in keyword rules, falling back to
// the greeting.
func LocalReply(text string) string {
	input := strings.ToLower(text)
	for _, r := range rules {
		if r.matches(input) {
			return r.reply
		}
	}
	return Greeting
}

func (r rule) matches(input string) bool {
	for _, kw := range r.all {
		if !strings.Contains(input, kw) {
			return false
		}
	}
	if len(r.any) == 0 {
		return true
	}
	for _, kw := range r.any {
		if strings.Contains(input, kw) {
			return true
		}
	}
	return false
}
