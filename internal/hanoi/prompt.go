package hanoi

// PromptTemplate is the default text/template for LLM predictors. Fields come
// from mdap.Context; the json helper is provided by the predictor.
const PromptTemplate = `You are solving a Tower of Hanoi puzzle with three pegs numbered 0, 1 and 2.
Each peg is listed bottom first; larger numbers are larger disks.
Rules: move one disk at a time, only the top disk of a peg may move,
and a disk may never be placed on a smaller disk.

Current state: {{json .State}}
Goal state: {{json .Goal}}
{{- if .PreviousMove}}
Previous move: {{json .PreviousMove}}
{{- end}}

Choose the single next move of the optimal solution.
Answer with one JSON object and nothing else:
{"move": [disk, from_peg, to_peg], "predicted_state": [[...], [...], [...]]}
`
