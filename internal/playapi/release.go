package playapi

import (
	"sort"

	"google.golang.org/api/androidpublisher/v3"

	"github.com/CaioWing/apkharbor/internal/domain"
)

func toTrackRelease(d domain.ReleaseDescriptor) *androidpublisher.TrackRelease {
	rel := &androidpublisher.TrackRelease{
		Name:         d.Name,
		Status:       string(d.Status),
		VersionCodes: append([]int64(nil), d.VersionCodes...),
	}
	if d.RolloutFraction != nil {
		rel.UserFraction = *d.RolloutFraction
	}
	if d.InAppUpdatePriority != nil {
		rel.InAppUpdatePriority = *d.InAppUpdatePriority
		rel.ForceSendFields = append(rel.ForceSendFields, "InAppUpdatePriority")
	}

	langs := make([]string, 0, len(d.ReleaseNotes))
	for lang := range d.ReleaseNotes {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		rel.ReleaseNotes = append(rel.ReleaseNotes, &androidpublisher.LocalizedText{
			Language: lang,
			Text:     d.ReleaseNotes[lang],
		})
	}
	return rel
}

func fromTrackRelease(rel *androidpublisher.TrackRelease) domain.ReleaseDescriptor {
	d := domain.ReleaseDescriptor{
		Name:         rel.Name,
		Status:       domain.ReleaseStatus(rel.Status),
		VersionCodes: append([]int64(nil), rel.VersionCodes...),
	}
	if rel.UserFraction > 0 {
		f := rel.UserFraction
		d.RolloutFraction = &f
	}
	if rel.InAppUpdatePriority != 0 {
		p := rel.InAppUpdatePriority
		d.InAppUpdatePriority = &p
	}
	if len(rel.ReleaseNotes) > 0 {
		d.ReleaseNotes = make(map[string]string, len(rel.ReleaseNotes))
		for _, n := range rel.ReleaseNotes {
			d.ReleaseNotes[n.Language] = n.Text
		}
	}
	return d
}
