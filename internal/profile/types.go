package profile

// Objectives is the fixed checklist of facts the ambassador tries to learn
// about every user. Readiness is judged against it.
var Objectives = []string{
	"kids",
	"job",
	"values",
	"relationship style",
	"kinkiness",
	"sexual preferences",
	"age",
	"desired age range",
	"languages",
}

// EmptyDisplay is shown in place of a profile nothing is known about yet.
const EmptyDisplay = "No data yet."
