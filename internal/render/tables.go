package render

const tableTemplates = `
{{define "empty"}}<div class="empty-state">{{.}}</div>{{end}}

{{define "plan"}}<table class="table plan-table">
<thead><tr><th>Código</th><th>Actividad</th><th>Responsable</th><th>Estado</th><th>Fechas</th><th>Archivo</th></tr></thead>
<tbody>
{{range .}}<tr data-id="{{f . "id"}}">
<td class="code-cell">{{or (f . "activity_code") "-"}}</td>
<td><div class="task-name">{{or (f . "task_name") "Sin nombre"}}</div><div class="meta-text">{{f . "product_code"}}</div></td>
<td><span class="role-badge">{{or (f . "primary_responsible") "-"}}</span></td>
{{with or (f . "status") "Pendiente"}}<td><span class="status-badge {{statusClass .}}">{{.}}</span></td>{{end}}
<td class="date-cell">{{date . "fecha_inicio"}} - {{date . "fecha_fin"}}</td>
<td class="text-center">{{if eq (f . "has_file_uploaded") "true" "1"}}<span class="file-icon uploaded" title="Documento cargado"></span>{{else}}<span class="file-icon" title="Sin documento"></span>{{end}}</td>
</tr>
{{end}}</tbody>
</table>{{end}}

{{define "hitos"}}<table class="table hitos-table">
<thead><tr><th>Hito</th><th>Fecha estimada</th><th>Actividad</th><th>Estado</th></tr></thead>
<tbody>
{{range .}}<tr data-id="{{f . "id"}}">
<td><div class="hito-name">{{f . "nombre"}}</div><div class="meta-text">{{f . "descripcion"}}</div></td>
<td class="date-cell">{{date . "fecha_estimada"}}</td>
<td><div class="code-cell">{{or (f . "activity_code") "-"}}</div><div class="meta-text">{{f . "task_name"}}</div></td>
{{with or (f . "estado") "Pendiente"}}<td><span class="status-badge {{statusClass .}}">{{.}}</span></td>{{end}}
</tr>
{{end}}</tbody>
</table>{{end}}

{{define "observaciones"}}<div class="obs-list">
{{range .}}<div class="obs-card" data-id="{{f . "id"}}">
<div class="avatar">{{initial (f . "usuario_nombre")}}</div>
<div class="obs-body">
<div class="obs-header"><strong>{{or (f . "usuario_nombre") "Anónimo"}}</strong> <span class="meta-text">{{date . "created_at"}}</span></div>
{{if f . "activity_code"}}<div class="obs-ref"><span class="code-cell">{{f . "activity_code"}}</span> {{f . "task_name"}}</div>{{end}}
<p class="obs-text">{{f . "texto"}}</p>
</div>
</div>
{{end}}</div>{{end}}

{{define "documentos"}}<table class="table docs-table">
<thead><tr><th>Archivo</th><th>Actividad</th><th>Subido por</th><th>Fecha</th></tr></thead>
<tbody>
{{range .}}<tr data-id="{{f . "id"}}">
<td>{{if f . "ruta_archivo"}}<a href="{{f . "ruta_archivo"}}" target="_blank">{{f . "nombre_archivo"}}</a>{{else}}{{f . "nombre_archivo"}}{{end}}</td>
<td><div class="code-cell">{{or (f . "activity_code") "-"}}</div><div class="meta-text">{{f . "task_name"}}</div></td>
<td>{{or (f . "uploader") "-"}}</td>
<td>{{date . "created_at"}}</td>
</tr>
{{end}}</tbody>
</table>{{end}}
`
