package render

const repoTemplates = `
{{define "repositorio"}}<div class="repo-grid">
{{range .}}<div class="repo-card" data-id="{{f . "id"}}">
<div class="repo-header">
<span class="repo-type">{{or (f . "tipo_fuente") "Documento"}}</span>
{{with f . "estado"}}<span class="repo-status">{{.}}</span>{{end}}
<h3 title="{{f . "titulo"}}">{{f . "titulo"}}</h3>
</div>
<div class="repo-desc"><span class="label">Resumen:</span> {{or (f . "descripcion") "Sin descripción disponible."}}</div>
{{with keyPoints (f . "puntos_clave")}}<div class="key-points"><h4>Puntos Clave</h4><ul>
{{range $i, $p := .}}{{if lt $i 3}}<li>{{$p}}</li>{{end}}{{end}}
{{if gt (len .) 3}}<li class="more">+{{more (len .)}} más...</li>{{end}}
</ul></div>{{end}}
<div class="repo-tags">{{range tags (f . "etiquetas")}}<span class="tag">{{.}}</span>{{end}}</div>
<div class="repo-footer"><span>{{or (year . "fecha_publicacion") "N/A"}}</span> | <span>{{or (f . "fuente_origen") "Origen Desc."}}</span></div>
{{with f . "enlace_externo"}}<a class="btn" href="{{.}}" target="_blank">Abrir Enlace</a>{{end}}
</div>
{{end}}</div>{{end}}
`
