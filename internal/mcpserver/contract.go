package mcpserver

// AlertFormats describes the messages trailguard sends so that LLM
// consumers can explain them to the user or their contacts.
const AlertFormats = `# Trailguard Alert Formats

Every alert goes to each selected emergency contact as a plain text message.
Timestamps use the "03:04 PM, 02 Jan" layout in the configured time zone.
Locations are Google Maps links; when no fix is available the line reads
"Location: UNAVAILABLE".

## Journey update

Sent when a journey starts and then every alert interval on the primary
channel.

` + "```" + `
Journey update from <name>.
Location: https://maps.google.com/?q=<lat>,<lng>
Time: <time>
Battery: <level>%
` + "```" + `

## SOS

Sent on every configured channel at once.

` + "```" + `
EMERGENCY! <name> needs help.
Location: https://maps.google.com/?q=<lat>,<lng>
Time: <time>
Battery: <level>%
Please call or come immediately.
` + "```" + `

## Safe arrival

Sent once when a journey stops.

` + "```" + `
<name> has arrived safely.
Location: https://maps.google.com/?q=<lat>,<lng>
Time: <time>
` + "```" + `

## Low battery

Sent during a journey when the battery drops below the threshold, at most
once per rate window.

## Rules

- Nothing is sent while no contact is selected.
- Battery lines are omitted when the level is unknown.
- A voice keyword never sends an SOS by itself; the user must confirm the
  prompt first.
`
