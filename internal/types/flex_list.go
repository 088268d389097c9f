// flex_list.go
//
// Draft identity and hybrid persistence service for event proposals
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of proposaldb.
// proposaldb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// proposaldb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with proposaldb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexList decodes a JSON array, a single value, or a comma-separated string
// (the shape multipart forms produce for multi-select inputs).
type FlexList[T any] []T

func (f *FlexList[T]) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		*f = items
		return nil
	case '"':
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return err
		}
		if strings.Contains(joined, ",") {
			return f.decodeParts(strings.Split(joined, ","))
		}
	}

	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	*f = FlexList[T]{one}
	return nil
}

// decodeParts decodes each non-blank part as a JSON string into T.
func (f *FlexList[T]) decodeParts(parts []string) error {
	items := make(FlexList[T], 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		quoted, err := json.Marshal(part)
		if err != nil {
			return err
		}
		var item T
		if err := json.Unmarshal(quoted, &item); err != nil {
			return err
		}
		items = append(items, item)
	}
	*f = items
	return nil
}

func (f FlexList[T]) Slice() []T { return []T(f) }
