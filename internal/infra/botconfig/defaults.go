package botconfig

// defaultConfig builds the fully-populated default document. Migration
// deep-merges it under user documents, so every key here is guaranteed
// to exist after load.
func defaultConfig() map[string]any {
	fullRecordFields := map[string]any{
		"song_title":                  true,
		"artist":                      true,
		"difficulty_instrument":       true,
		"score":                       true,
		"stars":                       true,
		"charter":                     true,
		"accuracy":                    true,
		"play_count":                  true,
		"best_streak":                 true,
		"previous_record":             true,
		"improvement":                 true,
		"enchor_link":                 true,
		"chart_hash":                  true,
		"chart_hash_format":           "full",
		"timestamp":                   true,
		"footer_show_previous_holder": true,
		"footer_show_previous_score":  true,
		"footer_show_held_duration":   true,
		"footer_show_set_timestamp":   true,
	}
	minimalistRecordFields := map[string]any{
		"song_title":                  true,
		"artist":                      true,
		"difficulty_instrument":       true,
		"score":                       true,
		"stars":                       true,
		"charter":                     true,
		"accuracy":                    true,
		"play_count":                  true,
		"previous_record":             true,
		"improvement":                 true,
		"enchor_link":                 false,
		"chart_hash":                  true,
		"chart_hash_format":           "abbreviated",
		"timestamp":                   true,
		"footer_show_previous_holder": true,
		"footer_show_previous_score":  true,
		"footer_show_held_duration":   true,
		"footer_show_set_timestamp":   true,
	}

	accuracyDefault := func() map[string]any {
		return map[string]any{
			"format":           "combined_percentage_first",
			"show_notes_label": true,
		}
	}

	return map[string]any{
		"config_version": ConfigVersion,
		"bot_version":    BotVersion,

		"display": map[string]any{
			"timezone":                "UTC",
			"date_format":             "MM/DD/YYYY",
			"time_format":             "12-hour",
			"show_timezone_in_embeds": true,
		},

		"api": map[string]any{
			"host":           "localhost",
			"port":           8080,
			"debug_password": "",
			"rate_limiting": map[string]any{
				"enabled":                 true,
				"max_requests_per_minute": 60,
				"failed_auth_limit":       5,
			},
		},

		"logging": map[string]any{
			"enabled": true,
			"level":   "info",
			"rotation": map[string]any{
				"enabled":      true,
				"max_size_mb":  10,
				"keep_backups": 5,
			},
		},

		"announcements": map[string]any{
			"record_breaks": map[string]any{
				"enabled":              true,
				"min_score_threshold":  0,
				"ping_previous_holder": true,
				"embed_color":          "#FFD700",
				"style":                "full",
				"full_fields":          fullRecordFields,
				"minimalist_fields":    minimalistRecordFields,
			},
			"first_time_scores": map[string]any{
				"enabled":     true,
				"embed_color": "#4169E1",
				"style":       "full",
				"full_fields": map[string]any{
					"song_title":            true,
					"artist":                true,
					"difficulty_instrument": true,
					"score":                 true,
					"stars":                 true,
					"charter":               true,
					"accuracy":              true,
					"play_count":            true,
					"enchor_link":           true,
					"chart_hash":            true,
					"chart_hash_format":     "full",
					"timestamp":             true,
				},
				"minimalist_fields": map[string]any{
					"song_title":            true,
					"artist":                true,
					"difficulty_instrument": true,
					"score":                 true,
					"stars":                 true,
					"charter":               false,
					"accuracy":              false,
					"play_count":            false,
					"enchor_link":           false,
					"chart_hash":            true,
					"chart_hash_format":     "abbreviated",
					"timestamp":             true,
				},
			},
			"personal_bests": map[string]any{
				"enabled":                 false,
				"min_improvement_percent": 5.0,
				"min_improvement_points":  10000,
				"threshold_mode":          "both",
				"embed_color":             "#32CD32",
				"style":                   "full",
				"full_fields": map[string]any{
					"song_title":             true,
					"artist":                 true,
					"difficulty_instrument":  true,
					"score":                  true,
					"stars":                  true,
					"charter":                true,
					"accuracy":               true,
					"play_count":             true,
					"previous_best":          true,
					"improvement":            true,
					"server_record_holder":   true,
					"enchor_link":            true,
					"chart_hash":             true,
					"chart_hash_format":      "full",
					"timestamp":              true,
					"footer_show_previous_best": true,
					"footer_show_improvement":   true,
				},
				"minimalist_fields": map[string]any{
					"song_title":             true,
					"artist":                 true,
					"difficulty_instrument":  true,
					"score":                  true,
					"stars":                  true,
					"charter":                false,
					"accuracy":               true,
					"play_count":             false,
					"previous_best":          true,
					"improvement":            true,
					"server_record_holder":   true,
					"enchor_link":            false,
					"chart_hash":             true,
					"chart_hash_format":      "abbreviated",
					"timestamp":              true,
					"footer_show_previous_best": true,
					"footer_show_improvement":   true,
				},
			},
			"full_combos": map[string]any{
				"enabled":                  true,
				"announce_regular_fc":      true,
				"announce_first_fc":        true,
				"announce_fc_record_break": true,
				"announce_retroactive_fcs": false,
				"embed_color":              "#9B30FF",
				"style":                    "full",
				"full_fields": map[string]any{
					"song_title":            true,
					"artist":                true,
					"difficulty_instrument": true,
					"score":                 true,
					"stars":                 true,
					"charter":               true,
					"accuracy":              true,
					"play_count":            true,
					"enchor_link":           true,
					"chart_hash":            true,
					"chart_hash_format":     "full",
					"timestamp":             true,
				},
				"minimalist_fields": map[string]any{
					"song_title":            true,
					"artist":                true,
					"difficulty_instrument": true,
					"score":                 true,
					"stars":                 true,
					"charter":               false,
					"accuracy":              true,
					"play_count":            false,
					"enchor_link":           false,
					"chart_hash":            true,
					"chart_hash_format":     "abbreviated",
					"timestamp":             true,
				},
			},
			"accuracy_display": map[string]any{
				"record_breaks":     accuracyDefault(),
				"first_time_scores": accuracyDefault(),
				"personal_bests":    accuracyDefault(),
				"full_combos":       accuracyDefault(),
			},
		},

		"difficulty_tiers": map[string]any{
			"tier1": map[string]any{"name": "Casual", "emoji": "🟢", "min_nps": 0.0, "max_nps": 3.0},
			"tier2": map[string]any{"name": "Seasoned", "emoji": "🟡", "min_nps": 3.0, "max_nps": 6.0},
			"tier3": map[string]any{"name": "Shredder", "emoji": "🟠", "min_nps": 6.0, "max_nps": 9.0},
			"tier4": map[string]any{"name": "Inhuman", "emoji": "🔴", "min_nps": 9.0, "max_nps": 99.0},
		},

		"hardest_command": map[string]any{
			"min_notes_filter": 100,
			"default_min_nps":  0.0,
			"default_max_nps":  99.0,
		},

		"daily_activity_log": map[string]any{
			"enabled":         false,
			"generation_time": "03:00",
			"keep_days":       30,
		},
	}
}
