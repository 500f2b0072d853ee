package remote

// buildRequest composes the lexical multi_match query (weighted fields
// text^2, tags, fuzziness AUTO, minimum_should_match) with optional term
// filters and an optional knn clause over a stored text_vector field, per
// the adapter's documented contract.
func buildRequest(q Query) searchRequest {
	k := q.K
	if k <= 0 {
		k = 10
	}

	req := searchRequest{
		Size: k,
		Query: boolQuery{
			Bool: boolBody{
				Must: []multiMatchClause{
					{MultiMatch: multiMatchBody{
						Query:              q.Text,
						Fields:             []string{"text^2", "tags"},
						Fuzziness:          fuzziness,
						MinimumShouldMatch: minimumShouldMatch,
					}},
				},
				Filter: buildFilters(q.Filters),
			},
		},
	}

	if len(q.Vector) > 0 {
		req.Knn = &knnClause{
			Field:         "text_vector",
			QueryVector:   q.Vector,
			K:             k,
			NumCandidates: k * 10,
		}
	}

	return req
}

func buildFilters(f Filters) []termClause {
	var filters []termClause
	add := func(field, value string) {
		if value != "" {
			filters = append(filters, termClause{Term: map[string]string{field: value}})
		}
	}
	add("system", f.System)
	add("part", f.Part)
	add("vehicletype", f.VehicleType)
	add("faultcode", f.FaultCode)
	return filters
}
