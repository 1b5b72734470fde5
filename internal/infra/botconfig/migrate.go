package botconfig

import zlog "github.com/rs/zerolog/log"

// migrate runs the migration chain from the document's version up to
// ConfigVersion. Migrations are additive: user-set values survive,
// missing keys are filled from the current defaults, and keys retired
// by a migration are deleted explicitly.
func (m *Manager) migrate(from int) {
	if from < 2 {
		m.migrateV1ToV2()
	}
	if from < 3 {
		m.migrateV2ToV3()
	}
	zlog.Info().Msg("Config migration complete")
}

// migrateV1ToV2 introduced the per-category field palettes: every
// category gains full_fields/minimalist_fields, filled from defaults
// where the user has nothing.
func (m *Manager) migrateV1ToV2() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = deepMerge(m.doc, defaultConfig())
}

// migrateV2ToV3 added accuracy_display, full_combos, difficulty tiers
// and the activity log, and retired the global_fields section in favor
// of per-category palettes.
func (m *Manager) migrateV2ToV3() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = deepMerge(m.doc, defaultConfig())

	if ann, ok := m.doc["announcements"].(map[string]any); ok {
		if _, ok := ann["global_fields"]; ok {
			zlog.Info().Msg("Removing retired 'global_fields' section")
			delete(ann, "global_fields")
		}
	}
}

// deepMerge overlays user onto def: user values win, maps merge
// recursively, keys only in def are filled in.
func deepMerge(user, def map[string]any) map[string]any {
	merged := make(map[string]any, len(def))
	for k, v := range def {
		merged[k] = v
	}
	for k, v := range user {
		if userMap, ok := v.(map[string]any); ok {
			if defMap, ok := merged[k].(map[string]any); ok {
				merged[k] = deepMerge(userMap, defMap)
				continue
			}
		}
		merged[k] = v
	}
	return merged
}
