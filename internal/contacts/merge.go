package contacts

import (
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/phone"
)

// Sources are the inputs of one merge.
type Sources struct {
	Remote     []models.Contact
	RemoteOK   bool
	Cached     []models.Contact
	CacheFound bool
	Device     []models.DeviceContact
}

// Rejection records an input dropped because its number did not normalize.
type Rejection struct {
	DisplayName string
	RawNumber   string
	Reason      string
}

// MergeResult is the output of Merge.
type MergeResult struct {
	Roster     []models.Contact
	Source     models.ContactSource
	Rejections []Rejection
}

// Selected returns the selected contacts in roster order.
func (r MergeResult) Selected() []models.Contact {
	return selectedOf(r.Roster)
}

// Merge reconciles the three contact sources into one roster keyed by
// canonical phone number. Selection flags come only from the authoritative
// source: the remote store when it answered, otherwise the local cache.
// Every other input contributes unselected candidates. The result depends
// only on the inputs and their order.
func Merge(n *phone.Normalizer, src Sources) MergeResult {
	m := &merger{
		normalizer: n,
		byPhone:    make(map[string]int),
		byRaw:      make(map[string]int),
	}

	res := MergeResult{Source: models.ContactSourceEmpty}
	switch {
	case src.RemoteOK:
		res.Source = models.ContactSourceRemote
		m.addAll(src.Remote, true)
		m.addAll(src.Cached, false)
	case src.CacheFound:
		res.Source = models.ContactSourceCache
		m.addAll(src.Cached, true)
	}
	for _, d := range src.Device {
		m.add(models.Contact{
			DisplayName:   d.Name,
			PhoneNumber:   d.RawPhoneNumber,
			SourceRawForm: d.Name + "\n" + d.RawPhoneNumber,
		}, false)
	}

	res.Roster = m.roster
	res.Rejections = m.rejections
	return res
}

type merger struct {
	normalizer *phone.Normalizer
	roster     []models.Contact
	byPhone    map[string]int
	byRaw      map[string]int
	rejections []Rejection
}

func (m *merger) addAll(in []models.Contact, authoritative bool) {
	for _, c := range in {
		m.add(c, authoritative)
	}
}

func (m *merger) add(c models.Contact, authoritative bool) {
	raw := c.RawForm()
	canonical, err := m.normalizer.Normalize(c.PhoneNumber)
	if err != nil {
		m.rejections = append(m.rejections, Rejection{
			DisplayName: c.DisplayName,
			RawNumber:   c.PhoneNumber,
			Reason:      err.Error(),
		})
		return
	}
	c.PhoneNumber = canonical
	c.SourceRawForm = raw
	if !authoritative {
		c.Selected = false
	}

	idx, ok := m.byPhone[canonical]
	if !ok {
		idx, ok = m.byRaw[raw]
	}
	if ok {
		existing := &m.roster[idx]
		if existing.DisplayName == "" {
			existing.DisplayName = c.DisplayName
		}
		// Duplicates inside the authoritative source keep any selection.
		if authoritative && c.Selected {
			existing.Selected = true
		}
		m.byRaw[raw] = idx
		return
	}

	m.roster = append(m.roster, c)
	idx = len(m.roster) - 1
	m.byPhone[canonical] = idx
	m.byRaw[raw] = idx
}

func selectedOf(roster []models.Contact) []models.Contact {
	var out []models.Contact
	for _, c := range roster {
		if c.Selected {
			out = append(out, c)
		}
	}
	return out
}
