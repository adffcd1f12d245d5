package session

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/uhfsession/internal/reader"
)

// Tag is the merged record of every observation of one (EPC, TID) pair.
type Tag struct {
	EPC        string  `json:"epc"`
	TID        string  `json:"tid"`
	RSSI       float64 `json:"rssi"`
	Count      int     `json:"count"`
	UserMemory string  `json:"userMemory"`
}

type tagKey struct {
	epc string
	tid string
}

// tagDeduper merges repeated observations and decides which ones are
// delivered. Delivery is keyed by EPC alone.
type tagDeduper struct {
	records *orderedmap.OrderedMap[tagKey, *Tag]
	sent    map[string]struct{}
}

func newTagDeduper() *tagDeduper {
	return &tagDeduper{
		records: orderedmap.New[tagKey, *Tag](),
		sent:    make(map[string]struct{}),
	}
}

// observe merges obs and returns the updated record. fresh is true while the
// record's EPC has not been delivered since it was last cleared.
func (d *tagDeduper) observe(obs reader.TagObservation) (tag Tag, fresh bool) {
	key := tagKey{epc: obs.EPC, tid: obs.TID}

	rec, ok := d.records.Get(key)
	if ok {
		rec.Count++
		rec.RSSI = obs.RSSI
		rec.TID = obs.TID
		rec.UserMemory = obs.UserMemory
	} else {
		rec = &Tag{EPC: obs.EPC, TID: obs.TID, RSSI: obs.RSSI, Count: 1, UserMemory: obs.UserMemory}
		d.records.Set(key, rec)
	}

	_, sent := d.sent[obs.EPC]
	return *rec, !sent
}

// markSent records that a delivery event for epc was emitted.
func (d *tagDeduper) markSent(epc string) {
	d.sent[epc] = struct{}{}
}

// clear removes every record with epc and re-arms its delivery.
func (d *tagDeduper) clear(epc string) bool {
	var keys []tagKey
	for pair := d.records.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key.epc == epc {
			keys = append(keys, pair.Key)
		}
	}
	_, sent := d.sent[epc]
	if len(keys) == 0 && !sent {
		return false
	}

	for _, k := range keys {
		d.records.Delete(k)
	}
	delete(d.sent, epc)
	return true
}

func (d *tagDeduper) clearAll() {
	d.records = orderedmap.New[tagKey, *Tag]()
	d.sent = make(map[string]struct{})
}

// snapshot returns the records in first-seen order.
func (d *tagDeduper) snapshot() []Tag {
	tags := make([]Tag, 0, d.records.Len())
	for pair := d.records.Oldest(); pair != nil; pair = pair.Next() {
		tags = append(tags, *pair.Value)
	}
	return tags
}

func (d *tagDeduper) len() int {
	return d.records.Len()
}

func (d *tagDeduper) sentLen() int {
	return len(d.sent)
}
