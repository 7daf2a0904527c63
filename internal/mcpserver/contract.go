package mcpserver

// PreviewPayloadContract documents the preview record shape that LLM
// consumers receive from the preview_file tool.
const PreviewPayloadContract = `# Tabcache Preview Payload Contract

The preview_file tool returns a JSON object describing one cached file.

## Fields

` + "```" + `json
{
  "notebook_id": "nb-42",            // owning notebook
  "path": "data/report.csv",          // logical path as requested
  "name": "report.csv",               // display name (base of path)
  "file_type": "csv",                 // see type list below
  "content": "...",                   // text, or a data: URI for binary types
  "last_modified": "2025-01-20T10:00:00Z",  // opaque backend version token
  "size": 1024,                       // bytes, as reported or measured
  "decode_error": "..."               // present when binary content failed to decode
}
` + "```" + `

## File types

` + "`" + `csv` + "`" + `, ` + "`" + `xlsx` + "`" + `, ` + "`" + `image` + "`" + `, ` + "`" + `pdf` + "`" + `, ` + "`" + `docx` + "`" + `, ` + "`" + `code` + "`" + `, ` + "`" + `markdown` + "`" + `, ` + "`" + `text` + "`" + `, ` + "`" + `other` + "`" + `.

## Rules

1. **Text types** (` + "`" + `csv` + "`" + `, ` + "`" + `code` + "`" + `, ` + "`" + `markdown` + "`" + `, ` + "`" + `text` + "`" + `, ` + "`" + `other` + "`" + `) carry raw text in ` + "`" + `content` + "`" + `.
2. **Binary types** (` + "`" + `image` + "`" + `, ` + "`" + `pdf` + "`" + `, ` + "`" + `docx` + "`" + `, ` + "`" + `xlsx` + "`" + `) carry a ` + "`" + `data:<mime>;base64,...` + "`" + ` URI.
3. When ` + "`" + `decode_error` + "`" + ` is present the content could not be decoded; treat it as unavailable.
4. ` + "`" + `last_modified` + "`" + ` is opaque. Pass it back unchanged to detect staleness; never parse it.
5. A file that does not exist on the backend produces an empty tool result, not an error.
6. **Tab ids** are ` + "`" + `<notebook_id>::<path>` + "`" + `. Paths may contain slashes; the id is split on the first ` + "`" + `::` + "`" + ` only.
`
