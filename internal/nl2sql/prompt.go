package nl2sql

import (
	"strconv"
	"strings"
)

// TableName is the name every uploaded dataset is registered under.
const TableName = "user_data"

// CueToken ends every prompt so the model continues with a statement.
const CueToken = "SQL:"

type fewShotExample struct {
	Question string
	SQL      string
}

var fewShotExamples = []fewShotExample{
	{
		Question: "What is the average salary of employees older than 30?",
		SQL:      "SELECT AVG(salary) FROM user_data WHERE age > 30;",
	},
	{
		Question: "List all distinct departments sorted by name.",
		SQL:      "SELECT DISTINCT department FROM user_data ORDER BY department;",
	},
	{
		Question: "How many employees are in the IT department and earn more than 70000?",
		SQL:      "SELECT COUNT(*) FROM user_data WHERE department = 'IT' AND salary > 70000;",
	},
	{
		Question: "Which employees joined in the last 2 years?",
		SQL:      "SELECT * FROM user_data WHERE join_date >= DATE('now', '-2 years');",
	},
	{
		Question: "Show the top 5 highest paid employees.",
		SQL:      "SELECT * FROM user_data ORDER BY salary DESC LIMIT 5;",
	},
}

// BuildPrompt renders the completion prompt for a question about the
// user_data table. The question is passed through untouched.
func BuildPrompt(columns []string, question string) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL assistant. Convert user questions into accurate, executable SQL queries using the given table schema.\n\n")
	b.WriteString("### Table schema:\n")
	b.WriteString("Table: " + TableName + "\n")
	b.WriteString("Columns:\n")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString("\n\n### Examples:\n")
	for i, example := range fewShotExamples {
		b.WriteString("-- Example ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(":\n")
		b.WriteString("Question: " + example.Question + "\n")
		b.WriteString(CueToken + " " + example.SQL + "\n\n")
	}
	b.WriteString("-- Now your turn:\n\n")
	b.WriteString("Question: " + question + "\n")
	b.WriteString(CueToken)
	return b.String()
}

