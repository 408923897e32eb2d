package models

// Judge is the signed-in ground jury member.
type Judge struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Competition is one class of a show with its start list.
type Competition struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Starters []Starter      `json:"starters"`
	Tests    []DressageTest `json:"tests"`
}

// Show groups the competitions the judge is assigned to.
type Show struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Competitions []Competition `json:"competitions"`
}
