package mcpserver

// RecordFormat describes the nursing-note payloads the timeline accepts and
// the raw record files the local source parses.
const RecordFormat = `# Nursing Record Format

## Notes payload (JSON)

Either a bare array of day entries or an object carrying it under "notes":

` + "```" + `json
{"ok": true, "patient_id": "25-0000032", "notes": [
  {"date": "2025-07-24", "items": [{"keyword": "발열", "detail": "38.2도"}]},
  {"date": "2025-07-25", "items": [{"keyword": "가래", "detail": "호전됨"}]}
]}
` + "```" + `

- ` + "`date`" + ` is YYYY-MM-DD. Entries without a date are ignored; entries
  sharing a date are merged.
- ` + "`keyword`" + ` may be empty; such items are grouped under "기타".
- ` + "`detail`" + ` may start with a bullet ("-", "*", "•"); it is stripped for display.
- The detail "호전됨" marks a keyword that resolved since the previous day and
  is shown as a badge instead of text.

## Raw records (text)

` + "```" + `text
# 2025-07-24
* 가래 많음, 흡인 시행
- 수면 중 땀 흘림
` + "```" + `

- A "# YYYY-MM-DD" line opens a day.
- Only lines starting with "*" or "-" are read. Each vocabulary keyword the line
  contains yields one item whose detail is the whole line.
- Keywords present on the previous day but absent on a day can be reported as
  "호전됨" items for that day.
`
