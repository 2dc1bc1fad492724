package nbastats

import "github.com/courtsight/shotcache/shots"

// subjectIndex maps subject slugs to upstream player IDs. The index is
// static and bundled, mirroring the upstream roster endpoint; subjects
// not listed here fail resolution permanently (no retry).
var subjectIndex = map[string]int{
	"stephen-curry":           201939,
	"lebron-james":            2544,
	"kevin-durant":            201142,
	"giannis-antetokounmpo":   203507,
	"luka-doncic":             1629029,
	"jayson-tatum":            1628369,
	"joel-embiid":             203954,
	"nikola-jokic":            203999,
	"damian-lillard":          203081,
	"kawhi-leonard":           202695,
	"paul-george":             202331,
	"jimmy-butler":            202710,
	"devin-booker":            1626164,
	"anthony-edwards":         1630162,
	"shai-gilgeous-alexander": 1628983,
	"ja-morant":               1629630,
	"trae-young":              1629027,
	"donovan-mitchell":        1628378,
	"klay-thompson":           202691,
	"james-harden":            201935,
}

// ResolveSubject resolves a subject (full name or slug) to its
// upstream numeric ID.
func ResolveSubject(subject string) (int, bool) {
	id, ok := subjectIndex[shots.Slugify(subject)]
	return id, ok
}

// KnownSubjects lists every resolvable subject slug.
func KnownSubjects() []string {
	out := make([]string, 0, len(subjectIndex))
	for s := range subjectIndex {
		out = append(out, s)
	}
	return out
}
