package mcpserver

// AnnotationContract describes how a note body carries a date. LLM
// consumers should follow it when writing notes meant for the calendar.
const AnnotationContract = `# notemirror Annotation Format

A note appears on the calendar and in the reminder list when its body
contains a date annotation.

## Syntax

` + "```" + `
\@DD-MM-YYYY
` + "```" + `

- A backslash, an at sign, then a day-first date with zero-padded two-digit
  day and month and a four-digit year.
- The date must exist: ` + "`" + `\@31-02-2026` + "`" + ` is ignored.
- Only the first annotation in a body sets the date.
- Every annotation is removed before the event title is derived.

## Titles

The event title is built from the nouns and verbs of the body with the
annotations stripped and Markdown reduced to text. A body that yields no
such words produces an "Untitled Event".

## Example

` + "```" + `
Call the dentist and book an appointment \@01-04-2026
` + "```" + `

Projects to an all-day event on 1 April 2026 titled
"Call dentist book appointment".
`
